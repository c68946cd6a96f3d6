package main

import (
	"os"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
