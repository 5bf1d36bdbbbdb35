package main

import "github.com/auditdesk/auditdesk/cmd/auditdesk/cmd"

func main() {
	cmd.Execute()
}
