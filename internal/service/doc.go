// Package service contains the application use cases around image
// generation tasks. It sits between the delivery mechanisms (HTTP API and
// queue consumers) and the task engine.
//
// Key components:
//
// 1. TaskService:
//   - Creates tasks on behalf of an anonymous owner and publishes them to the queue
//   - Reads tasks back, refusing access to other owners' tasks
//
// 2. Delivery adapter:
//   - NewDeliveryHandler turns the dispatcher into a queue.Handler
//   - Unknown tasks become permanent failures so transports stop redelivering them
//
// 3. Error Handling:
//   - Sentinel errors (ErrTaskNotFound, ErrTaskNotOwned, ErrEnqueueFailed) are mapped to HTTP status codes by the API layer
//   - Unexpected failures are wrapped in TaskServiceError with the operation name
//
// Services receive their dependencies through constructor injection and
// depend on store interfaces, never on a specific database.
package service
