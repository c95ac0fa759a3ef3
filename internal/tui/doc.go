// Package tui shows a running query in the terminal.
//
// The App model consumes engine events and draws the agents currently
// working, the progress towards the tree's total possible agents and a short
// activity log. RenderTree draws a finished delegation tree.
//
// Usage:
//
//	emitter := engine.NewEventEmitter(256, logger)
//	app := tui.NewApp(query, goal, runs, cancel)
//	program := tui.NewProgram(app)
//	go tui.Forward(program, emitter.Events())
//	go func() {
//	    res, err := eng.Execute(ctx, req)
//	    emitter.Close()
//	    program.Send(tui.DoneMsg{Answer: res.FinalAnswer, Err: err})
//	}()
//	program.Run()
package tui
