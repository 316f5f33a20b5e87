// Package config builds the coordinator's Config from cobra flags, with
// MKV_-prefixed environment variables as fallback for anything left at its
// flag default. It is read once at startup; nothing in the coordinator
// reloads it at runtime.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkvstore/coordinator/pkg/types"
)

// Bind registers the coordinator's flags on cmd.
func Bind(cmd *cobra.Command) {
	cmd.Flags().StringSlice("volumes", nil, "comma-separated list of volume ids (host:port)")
	cmd.Flags().Int("replicas", 2, "replica fanout per key (N)")
	cmd.Flags().Int("subvolumes", 1, "sub-volume partitions per volume (S)")
	cmd.Flags().Duration("vol-timeout", 500*time.Millisecond, "volume HEAD probe timeout")
	cmd.Flags().String("fallback", "", "optional fallback URL prefix for tombstoned keys")
	cmd.Flags().String("index-path", "mkv-index.db", "bbolt index database path")
	cmd.Flags().String("staging-dir", os.TempDir(), "multipart upload staging directory")
	cmd.Flags().String("port", ":3000", "HTTP listen address")
	cmd.Flags().String("metrics-addr", "", "optional separate /metrics listen address")
	cmd.Flags().Duration("shutdown-timeout", 10*time.Second, "bound on graceful drain")
}

// Load pulls Config fields out of cmd's flags, falling back to an MKV_*
// environment variable for any flag left at its zero/default value.
func Load(cmd *cobra.Command) (types.Config, error) {
	volumes, _ := cmd.Flags().GetStringSlice("volumes")
	if len(volumes) == 0 {
		if v := os.Getenv("MKV_VOLUMES"); v != "" {
			volumes = strings.Split(v, ",")
		}
	}

	replicas, _ := cmd.Flags().GetInt("replicas")
	replicas = envInt("MKV_REPLICAS", replicas, cmd.Flags().Changed("replicas"))

	subvolumes, _ := cmd.Flags().GetInt("subvolumes")
	subvolumes = envInt("MKV_SUBVOLUMES", subvolumes, cmd.Flags().Changed("subvolumes"))

	volTimeout, _ := cmd.Flags().GetDuration("vol-timeout")
	volTimeout = envDuration("MKV_VOL_TIMEOUT", volTimeout, cmd.Flags().Changed("vol-timeout"))

	fallback, _ := cmd.Flags().GetString("fallback")
	fallback = envString("MKV_FALLBACK", fallback, cmd.Flags().Changed("fallback"))

	indexPath, _ := cmd.Flags().GetString("index-path")
	indexPath = envString("MKV_INDEX_PATH", indexPath, cmd.Flags().Changed("index-path"))

	stagingDir, _ := cmd.Flags().GetString("staging-dir")
	stagingDir = envString("MKV_STAGING_DIR", stagingDir, cmd.Flags().Changed("staging-dir"))

	port, _ := cmd.Flags().GetString("port")
	port = envString("MKV_PORT", port, cmd.Flags().Changed("port"))

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	metricsAddr = envString("MKV_METRICS_ADDR", metricsAddr, cmd.Flags().Changed("metrics-addr"))

	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	shutdownTimeout = envDuration("MKV_SHUTDOWN_TIMEOUT", shutdownTimeout, cmd.Flags().Changed("shutdown-timeout"))

	logLevel, _ := cmd.Flags().GetString("log-level")
	logLevel = envString("MKV_LOG_LEVEL", logLevel, cmd.Flags().Changed("log-level"))

	logJSON, _ := cmd.Flags().GetBool("log-json")
	if !cmd.Flags().Changed("log-json") {
		if v := os.Getenv("MKV_LOG_JSON"); v != "" {
			logJSON, _ = strconv.ParseBool(v)
		}
	}

	return types.Config{
		Volumes:         volumes,
		Replicas:        replicas,
		Subvolumes:      subvolumes,
		VolTimeout:      volTimeout,
		Fallback:        fallback,
		IndexPath:       indexPath,
		StagingDir:      stagingDir,
		Port:            port,
		MetricsAddr:     metricsAddr,
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        logLevel,
		LogJSON:         logJSON,
	}, nil
}

func envString(key, current string, changed bool) string {
	if changed {
		return current
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return current
}

func envInt(key string, current int, changed bool) int {
	if changed {
		return current
	}
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return current
}

func envDuration(key string, current time.Duration, changed bool) time.Duration {
	if changed {
		return current
	}
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return current
}
