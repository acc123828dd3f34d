package main

import "github.com/nguyentranbao-ct/field-booking-admin/cmd"

func main() {
	cmd.Execute()
}
