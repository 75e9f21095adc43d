// Package codingtoolbox groups the built-in tools the agent uses to work on
// the local machine:
//
//   - [github.com/germanamz/babycode/pkg/codingtoolbox/filesystem]: read_file, write_file and list_files, optionally confined to a root directory
package codingtoolbox
