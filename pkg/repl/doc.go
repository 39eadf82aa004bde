// Package repl drives a MicroPython interpreter over a byte channel.
package repl

// A Session moves the remote between its friendly REPL, raw mode and
// raw-paste mode. Program text is submitted in raw-paste mode when the
// firmware supports it, honoring the credit window the remote grants, and
// in 32-byte paced chunks of plain raw mode otherwise.
//
// Every response is two sections, stdout and stderr, each ended by CTRL-D.
// A non-empty stderr section is returned as *RemoteError.
//
// Every read is bounded: a remote that stops answering surfaces as
// ErrTimeout and the next transition back to the friendly prompt performs a
// hard reset.
