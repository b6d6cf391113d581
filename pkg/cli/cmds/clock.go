package cmds

import (
	"github.com/robotalks/ttyio/pkg/rtc"
)

// ClockCommands are date, time, set-date and set-time on clock.
func ClockCommands(clock rtc.Clock) []*Command {
	return []*Command{
		{
			Name: "date",
			Help: "Displays the current date",
			Func: func(c *Context) bool {
				c.Printf("\r\n%s\r\n", clock.Date())
				return false
			},
		},
		{
			Name: "time",
			Help: "Displays the current time",
			Func: func(c *Context) bool {
				c.Printf("\r\n%s\r\n", clock.TimeOfDay())
				return false
			},
		},
		{
			Name:   "set-date",
			Usage:  "<dd/mm/yy>",
			Help:   "Sets the date",
			Params: 1,
			Func: func(c *Context) bool {
				d, err := rtc.ParseDate(c.Args[0])
				if err == nil {
					err = clock.SetDate(d)
				}
				if err != nil {
					c.Printf(MsgInvalidParam)
					return false
				}
				c.Printf("\r\nDate set to %s\r\n", clock.Date())
				return false
			},
		},
		{
			Name:   "set-time",
			Usage:  "<hh:mm:ss>",
			Help:   "Sets the time",
			Params: 1,
			Func: func(c *Context) bool {
				t, err := rtc.ParseTime(c.Args[0])
				if err == nil {
					err = clock.SetTime(t)
				}
				if err != nil {
					c.Printf(MsgInvalidParam)
					return false
				}
				c.Printf("\r\nTime set to %s\r\n", clock.TimeOfDay())
				return false
			},
		},
	}
}
