package main

import "github.com/oshokin/conda-rpms/cmd/conda-rpms-build/cmd"

func main() {
	cmd.Execute()
}
