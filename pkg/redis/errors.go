package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("empty redis connection url")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection url")
	ErrRedisNotReady                = errors.New("redis not ready after all connection attempts")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
)
