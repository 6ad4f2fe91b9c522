package main

// General API documentation for swaggo. Regenerate with
// `swag init -g cmd/flickd/docs.go -o internal/httpapi/docs`.
//
// @title           flickd API
// @version         1.0
// @description     Control API for the flickd brain-signal session daemon: calibration
// @description     training, live prediction monitoring and actuator tests.
//
// @contact.name   flickd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
