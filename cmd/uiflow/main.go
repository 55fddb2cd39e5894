package main

import "github.com/zhangyongjun10/testhub-platform-sub000/pkg/cli"

func main() {
	cli.Execute()
}
