// Package app contains the core application logic. It loads a pipeline,
// builds and prepares its execution tree, runs it and writes the rows of the
// root to the output, decoupled from any specific entrypoint like a CLI.
package app
