// Package tasks runs background work handed off by request handlers.
//
// CommandSyncQueue re-registers the application's Discord commands after a
// manifest is registered or deleted. Handlers enqueue a Task and either
// return at once or Wait for it, depending on whether their caller needs
// the commands live before the response. Failed tasks are kept in a
// bounded dead-letter list exposed through DeadLetters.
package tasks
