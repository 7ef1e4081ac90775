package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/amqp-engine/internal/amqp/dispatcher"
	"github.com/taoyao-code/amqp-engine/internal/amqp/performative"
	"github.com/taoyao-code/amqp-engine/internal/gateway"
)

var decodeSASL bool

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "解析十六进制帧字节",
	Long:  "按帧层规则逐帧解析输入，打印 channel、performative、字段与载荷长度。输入可带空白，开头的协议头会被识别并跳过。",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hex.DecodeString(strings.Join(strings.Fields(strings.Join(args, "")), ""))
		if err != nil {
			return fmt.Errorf("hex 解析: %w", err)
		}
		ft := performative.FrameTypeAMQP
		if decodeSASL {
			ft = performative.FrameTypeSASL
		}
		return decodeFrames(cmd.OutOrStdout(), data, ft)
	},
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeSASL, "sasl", false, "按 SASL 帧类型解析")
}

// decodeFrames 逐帧打印；未知 opcode 跳过，半包与畸形帧返回错误
func decodeFrames(w io.Writer, data []byte, frameType uint8) error {
	if len(data) >= gateway.HeaderSize && string(data[:4]) == "AMQP" {
		h, err := gateway.ParseHeader(data[:gateway.HeaderSize])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "header %s\n", h)
		data = data[gateway.HeaderSize:]
	}

	d := dispatcher.New(frameType, w)
	defer d.Close()
	d.RegisterAll(func(d *dispatcher.Dispatcher[io.Writer]) error {
		_, err := fmt.Fprintf(d.Context(), "ch=%d %s %v payload=%d\n",
			d.Channel(), performative.Code(d.Code()), []any(d.Args()), len(d.Payload()))
		return err
	})
	d.SetHeartbeatHandler(func(ch uint16) { fmt.Fprintf(w, "ch=%d heartbeat\n", ch) })

	for len(data) > 0 {
		n, err := d.Input(data)
		data = data[n:]
		var ue *dispatcher.UnknownOpcodeError
		switch {
		case errors.As(err, &ue):
			fmt.Fprintf(w, "ch=%d unknown opcode 0x%02x\n", ue.Channel, ue.Code)
		case err != nil:
			return err
		case len(data) > 0:
			return fmt.Errorf("%d trailing bytes do not form a complete frame", len(data))
		}
	}
	return nil
}
