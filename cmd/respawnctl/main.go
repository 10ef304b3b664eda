// Command respawnctl drives a duplicator against a scene file held in an
// in-memory host.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	duplicator "github.com/goliatone/go-duplicator"
	"github.com/goliatone/go-duplicator/memhost"
	"github.com/goliatone/go-duplicator/scenefile"
	"github.com/goliatone/go-duplicator/spatial"
)

var (
	verbose    bool
	scenePath  string
	configPath string
	anchorID   string
	targetID   string

	moveAnchor string
	turnAnchor string
	removeTgt  bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "respawnctl",
	Short: "Keep a scene object at a fixed offset from an anchor",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List the object ids that can be tracked",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup()
		if err != nil {
			return err
		}
		for _, id := range s.dup.Candidates() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var respawnCmd = &cobra.Command{
	Use:   "respawn",
	Short: "Select the target, optionally disturb the scene, and reconcile",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := s.dup.Select(ctx, s.target); err != nil {
			return err
		}
		if err := s.disturb(); err != nil {
			return err
		}
		report, err := s.dup.Reconcile(ctx)
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile the target every time the scene file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := s.dup.Select(ctx, s.target); err != nil {
			return err
		}
		if err := s.dup.Start(ctx); err != nil {
			return err
		}
		defer s.dup.Close()

		return s.source.Watch(ctx, func(doc duplicator.SceneDocument) {
			if err := s.dup.Select(ctx, s.dup.Selected()); err != nil {
				logger.Warn("recapture failed", zap.Error(err))
				return
			}
			report, err := s.dup.Reconcile(ctx)
			if err != nil {
				logger.Warn("reconcile failed", zap.Error(err))
				return
			}
			if err := printReport(cmd, report); err != nil {
				logger.Warn("print report failed", zap.Error(err))
			}
		})
	},
}

type session struct {
	host   *memhost.Registry
	source *scenefile.Source
	dup    *duplicator.Duplicator
	anchor *memhost.Entity
	target string
}

func setup() (*session, error) {
	if scenePath == "" {
		return nil, errors.New("--scene is required")
	}
	fileCfg := duplicator.FileConfig{}
	if configPath != "" {
		loaded, err := duplicator.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		fileCfg = loaded
	}
	if anchorID != "" {
		fileCfg.Anchor = anchorID
	}
	if targetID != "" {
		fileCfg.Target = targetID
	}
	if fileCfg.Anchor == "" {
		return nil, errors.New("an anchor id is required (--anchor or config)")
	}

	source, err := scenefile.Open(scenePath, scenefile.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	doc, _ := source.LoadedDocument()
	host := memhost.FromDocument(doc)
	anchor, ok := host.Entity(fileCfg.Anchor)
	if !ok {
		return nil, fmt.Errorf("anchor %q not in scene", fileCfg.Anchor)
	}

	opts := append(fileCfg.Options(), duplicator.WithLogger(logger))
	dup, err := duplicator.New(host, source, anchor, opts...)
	if err != nil {
		return nil, err
	}
	return &session{host: host, source: source, dup: dup, anchor: anchor, target: fileCfg.Target}, nil
}

func (s *session) disturb() error {
	pose := s.anchor.Pose()
	moved := false
	if moveAnchor != "" {
		position, err := parseVec(moveAnchor)
		if err != nil {
			return fmt.Errorf("--move-anchor: %w", err)
		}
		pose.Position = position
		moved = true
	}
	if turnAnchor != "" {
		euler, err := parseVec(turnAnchor)
		if err != nil {
			return fmt.Errorf("--turn-anchor: %w", err)
		}
		pose.Rotation = spatial.Euler(euler)
		moved = true
	}
	if moved {
		s.anchor.SetPose(pose)
	}
	if removeTgt {
		if err := s.host.Remove(s.target); err != nil {
			return err
		}
	}
	return nil
}

func parseVec(value string) (spatial.Vec3, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return spatial.Vec3{}, fmt.Errorf("expected x,y,z, got %q", value)
	}
	var out [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return spatial.Vec3{}, err
		}
		out[i] = f
	}
	return spatial.V(out[0], out[1], out[2]), nil
}

func printReport(cmd *cobra.Command, report duplicator.Report) error {
	data, err := report.ToJSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&scenePath, "scene", "", "Scene JSON file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML duplicator config")
	rootCmd.PersistentFlags().StringVar(&anchorID, "anchor", "", "Anchor object id")
	rootCmd.PersistentFlags().StringVar(&targetID, "target", "", "Tracked object id")

	respawnCmd.Flags().StringVar(&moveAnchor, "move-anchor", "", "Move the anchor to x,y,z before reconciling")
	respawnCmd.Flags().StringVar(&turnAnchor, "turn-anchor", "", "Rotate the anchor to Euler x,y,z degrees before reconciling")
	respawnCmd.Flags().BoolVar(&removeTgt, "remove", false, "Remove the target before reconciling")

	rootCmd.AddCommand(candidatesCmd, respawnCmd, watchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
