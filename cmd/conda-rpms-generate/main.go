package main

import "github.com/oshokin/conda-rpms/cmd/conda-rpms-generate/cmd"

func main() {
	cmd.Execute()
}
