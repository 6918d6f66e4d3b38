package main

// General API documentation for swaggo. Regenerate docs with `swag init -g cmd/kartd/docs.go`.
//
// @title           kartd API
// @version         1.0
// @description     Classifies base64-encoded go-kart photos into a fixed set of kart types.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
