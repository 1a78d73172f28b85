// Command tamsctl is a thin HTTP client for operating a tamsd instance from
// the shell: list sources/flows, and trigger a flow deletion.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "tamsctl"
	app.Usage = "operate a tamsd instance from the command line"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "url", Value: "http://127.0.0.1:8080", Usage: "tamsd base URL"},
	}
	app.Commands = []cli.Command{
		{
			Name:  "sources",
			Usage: "list sources",
			Action: func(c *cli.Context) error {
				return getAndPrint(baseURL(c) + "/sources")
			},
		},
		{
			Name:      "flows",
			Usage:     "list flows of a source",
			ArgsUsage: "SOURCE_ID",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return missingArg(c, "SOURCE_ID")
				}
				return getAndPrint(baseURL(c) + "/sources/" + c.Args().Get(0) + "/flows")
			},
		},
		{
			Name:      "rm-flow",
			Usage:     "delete a flow, optionally cascading to its segments",
			ArgsUsage: "FLOW_ID",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "cascade"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return missingArg(c, "FLOW_ID")
				}
				url := baseURL(c) + "/flows/" + c.Args().Get(0)
				if c.Bool("cascade") {
					url += "?cascade=true"
				}
				return doAndPrint(http.MethodDelete, url)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "tamsctl:", err)
		os.Exit(1)
	}
}

func missingArg(c *cli.Context, name string) error {
	return fmt.Errorf("missing required argument: %s", name)
}

func baseURL(c *cli.Context) string { return c.GlobalString("url") }

func getAndPrint(url string) error { return doAndPrint(http.MethodGet, url) }

func doAndPrint(method, url string) error {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 || len(body) == 0 {
		fmt.Println(resp.Status)
		if len(body) > 0 {
			fmt.Println(string(body))
		}
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		fmt.Println(string(body))
		return nil
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(pretty))
	return nil
}
