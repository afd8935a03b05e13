// Package cmd provides the command-line interface for devlens.
//
// # Available Commands
//
//   - transform: Instrument page and layout templates into the output directory
//   - watch: Re-run the transform whenever templates change
//   - serve: Run the overlay dev server in front of the site dev server
//   - scan: List the tracked components of a rendered page
//   - edit: Edit a component's data file in the terminal
//   - history: Show recorded data edits
//   - version: Show version information
//
// # Command Examples
//
//	// Instrument src/ into .devlens/src once
//	devlens transform
//
//	// Keep the instrumented copy current and serve the overlay
//	devlens serve --watch --upstream http://localhost:4321
//
//	// List components of a built page as JSON
//	devlens scan dist/index.html -o json
//
//	// Edit the third entry of a list file for one site
//	devlens edit "list.json[2]" --site example.com
//
// # Configuration Integration
//
// Commands respect configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (DEVLENS_*)
//  3. Configuration file (.devlens.yml)
//  4. Default values (lowest priority)
package cmd
