package main

import "hrpay/internal/app/server"

func main() {
	server.Run()
}
