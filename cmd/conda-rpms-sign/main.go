package main

import "github.com/oshokin/conda-rpms/cmd/conda-rpms-sign/cmd"

func main() {
	cmd.Execute()
}
