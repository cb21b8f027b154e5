// Package redis connects to Redis with go-redis/v9.
//
// Connect parses Config.ConnectionURL, then pings until the server answers or
// the attempts run out. Healthcheck adapts a client to the readiness probe
// signature used by httpserver.ReadinessHandler.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// The tenant router uses the client to cache directory records, see
// tenant.CachedDirectory. Redis is optional: Config.Enabled is false when no
// URL is configured.
package redis
