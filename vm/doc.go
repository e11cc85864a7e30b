// Package vm implements a Cairo virtual machine.
//
// This package contains:
//   - Field element arithmetic over the Cairo prime
//   - Segmented, write-once relocatable memory
//   - Instruction decoding and the step interpreter
//   - Compiled-program JSON loading and identifier resolution
//   - Hint registration and dispatch
//   - The runner that drives a program from entrypoint to halt
package vm
