// Package app defines the contract shared by the cmd/* entrypoints: the sync
// service and the migration runner build a Runner and hand over control to it.
package app

// Runner represents a runnable application component.
type Runner interface {
	Run() error
}
