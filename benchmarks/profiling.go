package benchmarks

import (
	"os"
	"path"
	"runtime"
	"runtime/pprof"

	"go.uber.org/zap"
)

var (
	cpuprofile string
	memprofile string
)

// startProfiling starts the CPU profile when the flag is set. The returned
// function stops it and writes the heap profile.
func startProfiling(saveFile string) (func(), error) {
	logger := zap.L().Named("profiling")
	stopCPU := func() {}
	if cpuprofile != "" {
		if err := os.MkdirAll(saveFile, 0777); err != nil {
			return nil, err
		}
		cpuProfPath := path.Join(saveFile, cpuprofile)
		logger.Info("profiling CPU", zap.String("path", cpuProfPath))
		f, err := os.Create(cpuProfPath)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		stopCPU = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}

	return func() {
		stopCPU()
		if memprofile == "" {
			return
		}
		memProfPath := path.Join(saveFile, memprofile)
		logger.Info("profiling memory", zap.String("path", memProfPath))
		f, err := os.Create(memProfPath)
		if err != nil {
			logger.Warn("could not create memory profile", zap.Error(err))
			return
		}
		defer f.Close()
		runtime.GC() // up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			logger.Warn("could not write memory profile", zap.Error(err))
		}
	}, nil
}
