package cache

import (
	"net"
	"strconv"

	redisstorage "github.com/gofiber/storage/redis"
)

// Redis databases shared by the process.
const (
	DBCache    = 0 // dashboard cache, token blacklist, job queue
	DBSessions = 1
	DBOAuth    = 2
	DBLimiter  = 3
)

// Storage returns a fiber storage on the cache server using database db. It
// reuses the address and credentials of the shared client.
func Storage(db int) *redisstorage.Storage {
	opts := GetClient().Options()
	host, port := "127.0.0.1", 6379
	if opts.Addr != "" {
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if n, err := strconv.Atoi(p); err == nil {
				port = n
			}
		} else {
			host = opts.Addr
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: opts.Username,
		Password: opts.Password,
		Database: db,
	})
}
