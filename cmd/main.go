// The tombstoned helper engraves a tombstone for a crashing process
// whose threads an external collaborator has already stopped. It is
// invoked with the target's pid and tid and the raw signal state the
// collaborator captured; collection policy, attach mechanics and
// tombstone rotation live outside this binary.
//
// Usage: tombstoned <pid> <tid> <siginfo-file> <context-file> [abort-msg-addr]
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"

	"github.com/crashkit/tombstone/pkg/config"
	"github.com/crashkit/tombstone/pkg/engine"
	"github.com/crashkit/tombstone/pkg/registers"
	"github.com/crashkit/tombstone/pkg/safelog"
	"github.com/crashkit/tombstone/pkg/signalinfo"
	"github.com/crashkit/tombstone/pkg/validator"
)

func main() {
	configDir := "/etc/tombstoned"
	if envPath := os.Getenv("CONFIG_DIR"); envPath != "" {
		configDir = envPath
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Fatal("load config error", helpers.Error(err))
	}

	if err := validator.CheckPrerequisites(cfg.ProcRoot); err != nil {
		logger.L().Fatal("prerequisites check failed", helpers.Error(err))
	}

	if len(os.Args) < 5 {
		logger.L().Fatal("usage: tombstoned <pid> <tid> <siginfo-file> <context-file> [abort-msg-addr]")
	}

	pid, err := strconv.Atoi(os.Args[1])
	if err != nil {
		logger.L().Fatal("invalid pid", helpers.String("arg", os.Args[1]))
	}
	tid, err := strconv.Atoi(os.Args[2])
	if err != nil {
		logger.L().Fatal("invalid tid", helpers.String("arg", os.Args[2]))
	}

	rawSiginfo, err := os.ReadFile(os.Args[3])
	if err != nil {
		logger.L().Fatal("read siginfo", helpers.Error(err))
	}
	rawContext, err := os.ReadFile(os.Args[4])
	if err != nil {
		logger.L().Fatal("read machine context", helpers.Error(err))
	}

	var abortMsgAddress uint64
	if len(os.Args) > 5 {
		abortMsgAddress, err = strconv.ParseUint(os.Args[5], 0, 64)
		if err != nil {
			logger.L().Fatal("invalid abort message address", helpers.String("arg", os.Args[5]))
		}
	}

	si, err := signalinfo.Decode(rawSiginfo)
	if err != nil {
		logger.L().Fatal("decode siginfo", helpers.Error(err))
	}

	if err := engrave(cfg, pid, tid, si, rawContext, abortMsgAddress); err != nil {
		logger.L().Fatal("engrave tombstone", helpers.Error(err))
	}
}

func engrave(cfg config.Config, pid, tid int, si *signalinfo.Siginfo, rawContext []byte, abortMsgAddress uint64) error {
	crashLog := safelog.New(int(os.Stderr.Fd()), "tombstoned")

	host, err := engine.NewRemoteHost(cfg.ProcRoot, crashLog)
	if err != nil {
		return fmt.Errorf("opening procfs %s: %w", cfg.ProcRoot, err)
	}

	base := filepath.Join(cfg.TombstoneDir, fmt.Sprintf("tombstone_%d", pid))
	textFile, err := os.Create(base + ".txt")
	if err != nil {
		return fmt.Errorf("creating tombstone file: %w", err)
	}
	defer textFile.Close()

	var binarySink *os.File
	if cfg.EnableBinaryTombstones {
		binarySink, err = os.Create(base + ".cbor")
		if err != nil {
			logger.L().Warning("cannot create binary tombstone, skipping", helpers.Error(err))
		} else {
			defer binarySink.Close()
		}
	}

	host.CollectOpenFiles = cfg.CollectOpenFiles

	emit := func(line string, header bool) {
		if header || cfg.PersistVerboseBody {
			fmt.Fprintln(textFile, line)
		}
		if header {
			logger.L().Info(line)
		}
	}

	// An untyped nil keeps the serializer's "no sink" check honest.
	var sink io.Writer
	if binarySink != nil {
		sink = binarySink
	}

	_, warnings, err := host.Engrave(pid, tid, si, registers.CurrentArch(), rawContext, abortMsgAddress, sink, emit)
	if err != nil {
		return err
	}
	if warnings != nil {
		logger.L().Warning("tombstone degraded", helpers.Error(warnings))
	}
	logger.L().Info("tombstone written", helpers.String("path", base+".txt"))
	return nil
}
