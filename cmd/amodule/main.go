// Package main is the entry point for amodule.
package main

func main() {
	Execute()
}
