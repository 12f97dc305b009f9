package game

import (
	"fmt"
	"strings"
)

// String renders the board with the highest row on top. Player 1 is X,
// player 2 is O.
func (b *Board) String() string {
	var sb strings.Builder
	labelWidth := len(fmt.Sprint(b.height - 1))

	fmt.Fprintf(&sb, "%*s", labelWidth, "")
	for col := 0; col < b.width; col++ {
		fmt.Fprintf(&sb, " %d", col)
	}
	sb.WriteByte('\n')

	for row := b.height - 1; row >= 0; row-- {
		fmt.Fprintf(&sb, "%*d", labelWidth, row)
		for col := 0; col < b.width; col++ {
			sb.WriteByte(' ')
			switch b.cells[row*b.width+col] {
			case P1:
				sb.WriteByte('X')
			case P2:
				sb.WriteByte('O')
			default:
				sb.WriteByte('-')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
