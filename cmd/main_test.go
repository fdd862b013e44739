package main

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/patinalabs/patina/internal/adapters/http/api"
	app "github.com/patinalabs/patina/internal/app"
	"github.com/patinalabs/patina/internal/config"
	"github.com/patinalabs/patina/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainComponents(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("PATINA_ADDR", ":8080")
			_ = os.Setenv("PATINA_QUEUE_SIZE", "1000")
			_ = os.Setenv("PATINA_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("PATINA_ADDR")
				_ = os.Unsetenv("PATINA_QUEUE_SIZE")
				_ = os.Unsetenv("PATINA_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				convey.So(app.New(), convey.ShouldNotBeNil)
			})

			convey.Convey("And service should be creatable with custom options", func() {
				svc := app.New(
					app.WithWorkerCount(8),
					app.WithQueueSize(2000),
					app.WithDedupeSize(1000),
				)
				convey.So(svc, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing HTTP server creation", func() {
			svc := app.New()

			convey.Convey("Then the API server should be creatable and registrable", func() {
				server := api.NewServer(svc, svc, 100)
				convey.So(server, convey.ShouldNotBeNil)

				mux := http.NewServeMux()
				server.Register(context.Background(), mux)
				convey.So(mux, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When checking server timeout constants", func() {
			convey.So(readTimeout, convey.ShouldBeGreaterThan, 0)
			convey.So(writeTimeout, convey.ShouldBeGreaterThan, 0)
			convey.So(idleTimeout, convey.ShouldBeGreaterThan, readTimeout)
			convey.So(shutdownTimeout, convey.ShouldBeGreaterThan, 0)
		})
	})
}
