package main

import "github.com/expenseflow/expenseflow/cmd"

func main() {
	cmd.Execute()
}
