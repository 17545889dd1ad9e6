package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/bus"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/cache"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/services/bundle"
)

const defaultCacheBucket = "phassets-deploy-cache"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "phassetsctl",
		Short:         "Utility for deploying processed assets to Amazon S3",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newDeployCommand())
	cmd.AddCommand(newLookupCommand())
	cmd.AddCommand(newBundleCommand())
	return cmd
}

func newDeployCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "deploy <file>...",
		Short: "Deploy asset files, skipping the ones already in the bucket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			d, cleanup, err := newDeployer(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, path := range args {
				asset, err := deployer.NewFileAsset(path)
				if err != nil {
					return err
				}

				if !force {
					if url, ok := d.Lookup(ctx, asset); ok {
						fmt.Fprintf(cmd.OutOrStdout(), "skipped %s (already deployed at %s)\n", path, url)
						continue
					}
				}

				url, err := d.Deploy(ctx, asset)
				if err != nil {
					return fmt.Errorf("deploy %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deployed %s -> %s\n", path, url)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Upload even when the asset is already deployed")
	return cmd
}

func newLookupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <file>",
		Short: "Report the public URL of an asset if it is already deployed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			d, cleanup, err := newDeployer(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			asset, err := deployer.NewFileAsset(args[0])
			if err != nil {
				return err
			}

			url, ok := d.Lookup(ctx, asset)
			if !ok {
				return fmt.Errorf("%s is not deployed", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	return cmd
}

func newBundleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Bundle build and deploy operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBundleBuildCommand())
	cmd.AddCommand(newBundleDeployCommand())
	return cmd
}

func newBundleBuildCommand() *cobra.Command {
	var (
		assetsDir string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create a signed bundle from an assets directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := bundle.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = bundle.Build(commandContext(cmd), bundle.BuildConfig{
				AssetsDir: assetsDir,
				Output:    output,
				Signer:    signer,
				Stdout:    cmd.OutOrStdout(),
			})
			return err
		},
	}

	cmd.Flags().StringVar(&assetsDir, "assets-dir", "", "Directory containing assets to include")
	cmd.Flags().StringVar(&output, "output", "", "Destination bundle file (tar.zst)")
	_ = cmd.MarkFlagRequired("assets-dir")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newBundleDeployCommand() *cobra.Command {
	var bundleFile string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Verify a signed bundle and deploy its assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			signer, err := bundle.NewSignerFromEnv()
			if err != nil {
				return err
			}

			d, cleanup, err := newDeployer(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = bundle.Deploy(ctx, bundle.DeployConfig{
				BundlePath: bundleFile,
				Deployer:   d,
				Signer:     signer,
				Stdout:     cmd.OutOrStdout(),
			})
			return err
		},
	}

	cmd.Flags().StringVar(&bundleFile, "file", "", "Path to the bundle tar.zst")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newDeployer builds an activated deployer from the same environment the
// deployd service reads: PHASSETS_<SECTION>_<KEY> variables layered over
// the optional PHASSETS_CONFIG YAML file.
func newDeployer(ctx context.Context) (*deployer.Deployer, func(), error) {
	layers := deployer.Layered{deployer.EnvConfig{Prefix: "PHASSETS_"}}
	if path := os.Getenv("PHASSETS_CONFIG"); path != "" {
		file, err := deployer.LoadConfigFile(path)
		if err != nil {
			return nil, nil, err
		}
		layers = append(layers, file)
	}

	cfg, err := deployer.ParseConfig(layers, getEnv("PHASSETS_SECTION", deployer.DefaultSection))
	if err != nil {
		return nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var lookupCache deployer.Cache = cache.NewMemory()
	if natsURL := os.Getenv("PHASSETS_CACHE_NATS_URL"); natsURL != "" {
		kv, err := cache.NewKV(natsURL, getEnv("PHASSETS_CACHE_BUCKET", defaultCacheBucket), deployer.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect cache: %w", err)
		}
		cleanups = append(cleanups, kv.Close)
		lookupCache = kv
	}

	var opts []deployer.Option
	if natsURL := os.Getenv("PHASSETS_NATS_URL"); natsURL != "" {
		eventBus, err := bus.New(natsURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect bus: %w", err)
		}
		cleanups = append(cleanups, func() { eventBus.Close() })
		opts = append(opts, deployer.WithEvents(eventBus))
	}

	d, err := deployer.Activate(ctx, cfg, lookupCache, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return d, cleanup, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
