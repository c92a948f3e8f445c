// Package scylla stores the booking history projection in Scylla or Cassandra.
package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gocql/gocql"

	"activityhub/internal/infra/config"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewSession ensures the keyspace and tables exist and returns a session bound to the keyspace.
func NewSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(cfg.ScyllaKeyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %s", cfg.ScyllaKeyspace)
	}

	bootstrap, err := cluster(cfg, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	err = bootstrap.Query(keyspaceCQL(cfg.ScyllaKeyspace, cfg.ReplicationFactor)).WithContext(ctx).Exec()
	bootstrap.Close()
	if err != nil {
		return nil, fmt.Errorf("create keyspace: %w", err)
	}

	session, err := cluster(cfg, cfg.ScyllaKeyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.ScyllaKeyspace, err)
	}
	if err := session.Query(historyTableCQL(cfg.ScyllaKeyspace)).WithContext(ctx).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("create booking_history table: %w", err)
	}
	if logger != nil {
		logger.Info("scylla connected", slog.Any("hosts", cfg.ScyllaHosts), slog.String("keyspace", cfg.ScyllaKeyspace))
	}
	return session, nil
}

func cluster(cfg config.Config, keyspace string) *gocql.ClusterConfig {
	c := gocql.NewCluster(cfg.ScyllaHosts...)
	c.Keyspace = keyspace
	c.Timeout = cfg.ScyllaTimeout
	c.ConnectTimeout = cfg.ScyllaTimeout
	c.Consistency = cfg.ScyllaConsistency
	if cfg.ScyllaUsername != "" {
		c.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.ScyllaUsername,
			Password: cfg.ScyllaPassword,
		}
	}
	return c
}

func keyspaceCQL(keyspace string, replication int) string {
	if replication < 1 {
		replication = 1
	}
	return fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		keyspace, replication,
	)
}

// The event id is part of the clustering key so a redelivered event
// overwrites its own row.
func historyTableCQL(keyspace string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.booking_history (
	booking_id text,
	occurred_at timestamp,
	event_id text,
	event text,
	status text,
	quantity int,
	reason text,
	PRIMARY KEY (booking_id, occurred_at, event_id)
) WITH CLUSTERING ORDER BY (occurred_at ASC, event_id ASC);`, keyspace)
}
