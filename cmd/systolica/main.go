// Command systolica simulates convolution and GEMM workloads on a systolic
// array and writes the compute and bandwidth reports of every layer.
package main

import "github.com/tebeka/atexit"

func main() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
