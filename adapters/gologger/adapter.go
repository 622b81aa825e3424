package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const loggerName = "appstate"

// Resolve applies the provider > logger > nop precedence for the appstate
// logger family. The returned logger is always usable.
func Resolve(provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	resolvedProvider, resolvedLogger := glog.Resolve(loggerName, provider, logger)
	return resolvedProvider, glog.Ensure(resolvedLogger)
}

// JobProvider adapts a glog provider to the go-job logger provider contract.
func JobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// JobLogger adapts a glog logger to the go-job logger contract.
func JobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// WorkerLogging bundles the resolved glog handles with their go-job
// equivalents, so a host that replays detached tasks on a go-job worker
// wires logging once and hands the Job* handles to the worker runtime.
type WorkerLogging struct {
	Provider    glog.LoggerProvider
	Logger      glog.Logger
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// ForWorker resolves the appstate logger family and derives the go-job
// adapters from the same handles.
func ForWorker(provider glog.LoggerProvider, logger glog.Logger) WorkerLogging {
	resolvedProvider, resolvedLogger := Resolve(provider, logger)
	return WorkerLogging{
		Provider:    resolvedProvider,
		Logger:      resolvedLogger,
		JobProvider: JobProvider(resolvedProvider),
		JobLogger:   JobLogger(resolvedLogger),
	}
}
