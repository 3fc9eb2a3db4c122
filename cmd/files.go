package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends/aferofs"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/metadata"
)

// session is what every file command needs
type session struct {
	ctx    context.Context
	engine *core.Engine
	logger *zap.Logger
	close  func()
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	filesystem, closeFilesystem, err := buildFilesystem(cfg, logger)
	if err != nil {
		return nil, err
	}

	lockManager, err := buildLockManager(cfg.Locks, logger)
	if err != nil {
		closeFilesystem()
		return nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	return &session{
		ctx:    ctx,
		engine: core.NewEngine(filesystem, lockManager, cfg.Server.MaxListEntries, logger),
		logger: logger,
		close: func() {
			stop()
			_ = lockManager.Close()
			closeFilesystem()
			_ = logger.Sync()
		},
	}, nil
}

// withSession wraps a command body with session setup and teardown
func withSession(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		return run(cmd, s, args)
	}
}

func addFileCommands(root *cobra.Command) {
	lsCmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
	}
	recursive := lsCmd.Flags().BoolP("recursive", "r", false, "List everything below the directory")
	limit := lsCmd.Flags().Int("limit", 0, "Maximum number of entries (0 means the configured cap)")
	lsJSON := lsCmd.Flags().Bool("json", false, "Print entries as JSON")
	lsCmd.RunE = withSession(func(cmd *cobra.Command, s *session, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		listing, err := s.engine.ListDirectory(s.ctx, dir, *recursive, *limit)
		if err != nil {
			return err
		}
		if *lsJSON {
			return printJSON(cmd.OutOrStdout(), listing)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, entry := range listing.Entries {
			fmt.Fprintln(tw, formatEntry(entry))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if listing.Truncated {
			fmt.Fprintln(cmd.ErrOrStderr(), "listing truncated")
		}
		return nil
	})

	statCmd := &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the metadata of a file or directory",
		Args:  cobra.ExactArgs(1),
	}
	field := statCmd.Flags().String("field", "", "Retrieve a single field: size, last_modified, mime_type or visibility")
	statCmd.RunE = withSession(func(cmd *cobra.Command, s *session, args []string) error {
		if *field != "" {
			attrs, err := s.engine.Metadata(s.ctx, args[0], *field)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), attrs)
		}
		attrs, err := s.engine.Describe(s.ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), attrs)
	})

	existsCmd := &cobra.Command{
		Use:   "exists <path>",
		Short: "Report whether a path exists; exits non-zero when it does not",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			ok, err := s.engine.Exists(s.ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			if !ok {
				return fmt.Errorf("%s does not exist", args[0])
			}
			return nil
		}),
	}

	catCmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			rc, _, err := s.engine.OpenFile(s.ctx, args[0])
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		}),
	}

	putCmd := &cobra.Command{
		Use:   "put <local|-> <remote>",
		Short: "Upload a local file, or stdin when the source is -",
		Args:  cobra.RangeArgs(1, 2),
	}
	data := putCmd.Flags().String("data", "", "Upload this string instead of a file; takes only <remote>")
	contentType := putCmd.Flags().String("content-type", "", "Content type recorded with the upload")
	putCmd.RunE = withSession(func(cmd *cobra.Command, s *session, args []string) error {
		cfg := metadata.WriteConfig{}
		if *contentType != "" {
			cfg = cfg.With(metadata.OptionContentType, *contentType)
		}

		if cmd.Flags().Changed("data") {
			if len(args) != 1 {
				return fmt.Errorf("--data takes exactly one argument, the remote path")
			}
			return s.engine.WriteFile(s.ctx, args[0], []byte(*data), cfg)
		}
		if len(args) != 2 {
			return fmt.Errorf("put needs a local source and a remote destination")
		}

		var src io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
		}
		return s.engine.PutFile(s.ctx, args[1], src, cfg)
	})

	mkdirCmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
	}
	parents := mkdirCmd.Flags().BoolP("parents", "p", false, "Create missing parents; an existing directory is not an error")
	mkdirCmd.RunE = withSession(func(cmd *cobra.Command, s *session, args []string) error {
		if *parents {
			return aferofs.New(s.ctx, s.engine.Filesystem()).MkdirAll(args[0], 0o755)
		}
		return s.engine.CreateDirectory(s.ctx, args[0], metadata.WriteConfig{})
	})

	rmCmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file, or a directory with -r",
		Args:  cobra.ExactArgs(1),
	}
	rmDir := rmCmd.Flags().BoolP("recursive", "r", false, "Delete a directory and everything below it")
	rmCmd.RunE = withSession(func(cmd *cobra.Command, s *session, args []string) error {
		if *rmDir {
			return s.engine.DeleteDirectory(s.ctx, args[0])
		}
		return s.engine.DeleteFile(s.ctx, args[0])
	})

	mvCmd := &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Move a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			return s.engine.Move(s.ctx, args[0], args[1], metadata.WriteConfig{})
		}),
	}

	cpCmd := &cobra.Command{
		Use:   "cp <source> <destination>",
		Short: "Copy a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			return s.engine.Copy(s.ctx, args[0], args[1], metadata.WriteConfig{})
		}),
	}

	visibilityCmd := &cobra.Command{
		Use:   "visibility <path> <public|private>",
		Short: "Change the visibility of a file",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			v := metadata.Visibility(args[1])
			if v != metadata.VisibilityPublic && v != metadata.VisibilityPrivate {
				return fmt.Errorf("visibility must be %q or %q", metadata.VisibilityPublic, metadata.VisibilityPrivate)
			}
			return s.engine.SetVisibility(s.ctx, args[0], v)
		}),
	}

	pushCmd := &cobra.Command{
		Use:   "push <local-dir> <remote-dir>",
		Short: "Copy a local directory tree to the disk",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			remote := aferofs.New(s.ctx, s.engine.Filesystem())
			return mirror(cmd, s, afero.NewOsFs(), args[0], remote, args[1])
		}),
	}

	pullCmd := &cobra.Command{
		Use:   "pull <remote-dir> <local-dir>",
		Short: "Copy a directory tree from the disk to the local machine",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			remote := aferofs.New(s.ctx, s.engine.Filesystem())
			return mirror(cmd, s, remote, args[0], afero.NewOsFs(), args[1])
		}),
	}

	root.AddCommand(lsCmd, statCmd, existsCmd, catCmd, putCmd, mkdirCmd, rmCmd,
		mvCmd, cpCmd, visibilityCmd, pushCmd, pullCmd)
}

func mirror(cmd *cobra.Command, s *session, src afero.Fs, srcRoot string, dst afero.Fs, dstRoot string) error {
	start := time.Now()
	stats, err := aferofs.Mirror(s.ctx, src, srcRoot, dst, dstRoot)
	s.logger.Info("Mirror finished",
		zap.String("source", srcRoot),
		zap.String("destination", dstRoot),
		zap.Int("directories", stats.Directories),
		zap.Int("files", stats.Files),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d directories, %d files, %d bytes\n", stats.Directories, stats.Files, stats.Bytes)
	return nil
}

func formatEntry(attrs metadata.StorageAttributes) string {
	size := "-"
	if file, ok := attrs.(metadata.FileAttributes); ok {
		if n, ok := file.FileSize(); ok {
			size = fmt.Sprint(n)
		}
	}
	modified := "-"
	if ts, ok := attrs.LastModified(); ok {
		modified = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	name := attrs.Path()
	if attrs.IsDir() && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return strings.Join([]string{attrs.Type(), size, modified, name}, "\t")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
