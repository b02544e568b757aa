package main

import "fair-price-alerts/internal/cli"

func main() {
	cli.Execute()
}
