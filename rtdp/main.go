// Command rtdp runs the front end of the streaming readout aggregator.
package main

import "github.com/JeffersonLab/SRO-RTDP-sub001/rtdp/cmd"

func main() {
	cmd.Execute()
}
