package logger_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/rpc-resilience/pkg/logger"
)

var _ = Describe("New", func() {
	ctx := context.Background()

	DescribeTable("level parsing",
		func(level string, debugEnabled, warnEnabled bool) {
			log := logger.New(level, false, "dev")
			Expect(log.Enabled(ctx, slog.LevelDebug)).To(Equal(debugEnabled))
			Expect(log.Enabled(ctx, slog.LevelWarn)).To(Equal(warnEnabled))
		},
		Entry("debug enables everything", "debug", true, true),
		Entry("info filters debug", "info", false, true),
		Entry("error filters warnings", "error", false, false),
		Entry("unknown levels fall back to info", "loud", false, true),
	)

	It("should build a usable logger for every environment", func() {
		for _, env := range []string{"dev", "staging", "prod"} {
			log := logger.New("info", true, env)
			Expect(log).NotTo(BeNil())
			Expect(log.Enabled(ctx, slog.LevelInfo)).To(BeTrue())
		}
	})
})

var _ = Describe("Component", func() {
	It("should derive a child logger without touching the parent", func() {
		parent := logger.New("info", false, "dev")
		child := logger.Component(parent, "retry")

		Expect(child).NotTo(BeIdenticalTo(parent))
		Expect(child.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
	})
})
