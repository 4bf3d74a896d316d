// Package api handles incoming HTTP requests for image generation tasks,
// request validation and response formatting. It adapts HTTP to the task
// service and to the lifecycle engine behind the internal worker and cron
// endpoints.
package api
