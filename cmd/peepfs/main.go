/*
peepfs is a FUSE filesystem that exposes archive files (ZIP, TAR family,
ISO9660, RAR, MS-CAB) as browsable, read-only directories alongside the
backing directory they live in.
*/
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/spf13/cobra"

	"github.com/benjarvis/peepfs/internal/archive"
	"github.com/benjarvis/peepfs/internal/logging"
	"github.com/benjarvis/peepfs/internal/pathvfs"
	"github.com/benjarvis/peepfs/internal/webserver"
)

const (
	logBufferLinesMax = 500
	stackTraceBuffer  = 1 << 24

	defaultCacheGraceSecs = 10
	defaultCacheSize      = 1024 * 1024
	defaultMagicSuffix    = "peep"
)

// Version is the program version (filled in by the build, e.g. via
// -ldflags).
var Version = "dev"

// rootCommand is the root (and only) command.
var rootCommand = &cobra.Command{
	Use:          helpTextUse,
	Short:        helpTextShort,
	Long:         helpTextLong,
	Version:      Version,
	Args:         cobra.ExactArgs(2), //nolint:mnd
	RunE:         runMount,
	SilenceUsage: true,
}

// rootConfiguration stores the flags bound to rootCommand.
var rootConfiguration struct {
	foreground  bool
	debug       bool
	cacheGrace  int
	cacheSize   int64
	magicSuffix string
	webserver   string
}

func init() {
	cobra.EnableCommandSorting = false

	flags := rootCommand.Flags()
	flags.SortFlags = false

	// There is no fork-based daemonizing here (Go's runtime does not
	// support it cleanly); this process always runs in the foreground.
	// The flag is accepted for CLI-surface parity and not acted on.
	flags.BoolVarP(&rootConfiguration.foreground, "foreground", "f", false,
		"run in the foreground (daemonizing is not supported; always effectively on)")
	flags.BoolVarP(&rootConfiguration.debug, "debug", "d", false,
		"enable debug logging (implies --foreground)")
	flags.IntVarP(&rootConfiguration.cacheGrace, "cache_grace", "g", defaultCacheGraceSecs,
		"seconds a metadata cache entry stays valid after insertion")
	flags.Int64VarP(&rootConfiguration.cacheSize, "cache_size", "n", defaultCacheSize,
		"maximum number of metadata cache entries")
	flags.StringVarP(&rootConfiguration.magicSuffix, "magic_suffix", "m", defaultMagicSuffix,
		`suffix (without the leading dot) marking an archive's pseudo-directory`)
	flags.StringVar(&rootConfiguration.webserver, "webserver", "",
		"optional address (e.g. :8000) to serve the diagnostics dashboard on")
	flags.BoolP("version", "V", false, "print the version and exit")
}

func runMount(_ *cobra.Command, args []string) error {
	mountpoint := args[0]
	backingDir := strings.TrimRight(args[1], "/")

	if rootConfiguration.debug {
		rootConfiguration.foreground = true
	}

	if info, err := os.Stat(backingDir); err != nil || !info.IsDir() {
		return fmt.Errorf("backing directory %q is not a valid directory", backingDir)
	}

	log := logging.NewRingBuffer(logBufferLinesMax, os.Stderr)
	log.Printf("peepfs %s starting, backing dir %s, mountpoint %s\n", Version, backingDir, mountpoint)

	reg := archive.NewRegistry(
		archive.NewZipBackend(0, 30*time.Second, log), //nolint:mnd
		archive.NewStreamBackend(),
	)

	fsys := pathvfs.New(pathvfs.Options{
		BackingDir:  backingDir,
		MagicSuffix: "." + rootConfiguration.magicSuffix,
		CacheSize:   rootConfiguration.cacheSize,
		CacheGrace:  time.Duration(rootConfiguration.cacheGrace) * time.Second,
		Debug:       rootConfiguration.debug,
	}, reg, log)
	defer fsys.Cleanup()

	var dashSrv *http.Server
	if rootConfiguration.webserver != "" {
		dash, err := webserver.NewFSDashboard(fsys, log, Version)
		if err != nil {
			return fmt.Errorf("starting dashboard: %w", err)
		}

		dashSrv = dash.Serve(rootConfiguration.webserver)
		defer dashSrv.Close()
	}

	c, err := fuse.Mount(mountpoint, fuse.ReadOnly(), fuse.AllowOther(), fuse.FSName("peepfs"))
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	defer c.Close()
	defer fuse.Unmount(mountpoint) //nolint:errcheck

	var wg sync.WaitGroup
	var serveErr error

	wg.Go(func() {
		if err := fs.Serve(c, fsys); err != nil {
			serveErr = fmt.Errorf("serve: %w", err)
			log.Printf("FS serve error: %v\n", err)
		}
	})

	sigUnmount := make(chan os.Signal, 1)
	signal.Notify(sigUnmount, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigUnmount {
			log.Println("signal received, unmounting the filesystem...")

			if err := fuse.Unmount(mountpoint); err != nil {
				log.Printf("unmount error: %v (will retry on next signal)\n", err)

				continue
			}

			return
		}
	}()

	sigStack := make(chan os.Signal, 1)
	signal.Notify(sigStack, syscall.SIGUSR1)
	go func() {
		for range sigStack {
			log.Println("signal received, printing stacktrace to stderr...")
			buf := make([]byte, stackTraceBuffer)
			n := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:n])
		}
	}()

	wg.Wait()

	return serveErr
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
