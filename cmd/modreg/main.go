// Command modreg manages the module registry of a configuration
// repository: it schedules module installs, removals, updates and feature
// changes and applies them in one checked step.
package main

func main() {
	Execute()
}
