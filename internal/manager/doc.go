// Package manager owns the process-wide model handle and fronts every chat
// request. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: lifecycle state and the loaded Handle.
//   - load.go: one-time model load (eager or lazy) and the default Loader.
//   - errors.go: error types and helpers (IsTooBusy, IsNotReady, IsValidation).
//   - validate.go: request validation and per-backend clamping.
//   - admission.go: queueing and generation admission.
//   - chat.go: ChatCompletion entry point, streamed or collected.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: generation metrics.
//   - status_report.go: Health/Status reporting helpers.
//
// External packages should treat this package as the orchestration layer and use
// public methods only (e.g., NewWithConfig, Start, Ready, Health, Status,
// ChatCompletion, Close).
package manager
