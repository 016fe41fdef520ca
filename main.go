package main

import "github.com/frahmantamala/payment-hub/cmd"

func main() {
	cmd.Execute()
}
