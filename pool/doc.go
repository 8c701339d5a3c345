// File: pool/doc.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// NUMA-aware memory allocation, selected at runtime through platform-specific
// factories in separate files. Backs the UMEM frame pool when -numa-node is set.
package pool
