// Package config loads the relay's settings with viper.
//
// Defaults come from Default and are registered with SetDefaults. A YAML
// file (--config) and DESIGNSYNC_* environment variables override them, with
// dots in keys replaced by underscores:
//
//	DESIGNSYNC_AUTH_JWT_SECRET     auth.jwt_secret
//	DESIGNSYNC_STORE_BACKEND       store.backend
//	DESIGNSYNC_ROOMS_AUTHORIZER    rooms.authorizer
//
// Load unmarshals and validates; every invalid field is reported at once.
package config
