package conversation

import (
	"fmt"

	"ogma/internal/graph"
	"ogma/internal/state"
)

// Build wires the conversation graph:
//
//	parse_input -> load_context -> route_input
//	  route_input -[deterministic]-> execute_command -> send_response
//	  route_input -[template/codebase/ai]-> build_prompt -> execute_ai
//	  route_input -[swarm]-> execute_swarm
//	  route_input -[error]-> error_handler
//	  execute_ai / execute_swarm -> send_response (error_handler on failure)
//	  error_handler -> send_response -> END
//
// swarmNode runs the nested swarm machine to completion and folds its
// result back into the conversation state.
func Build(n *Nodes, swarmNode graph.NodeFunc[state.ConversationState]) (*graph.Compiled[state.ConversationState], error) {
	g := graph.New[state.ConversationState]()

	g.AddNode(NodeParseInput, n.ParseInput).
		AddNode(NodeLoadContext, n.LoadContext).
		AddNode(NodeRouteInput, n.RouteInput).
		AddNode(NodeExecuteCommand, n.ExecuteCommand).
		AddNode(NodeBuildPrompt, n.BuildPrompt).
		AddNode(NodeExecuteAI, n.ExecuteAI).
		AddNode(NodeExecuteSwarm, swarmNode).
		AddNode(NodeSendResponse, n.SendResponse).
		AddNode(NodeErrorHandler, n.HandleError)

	g.SetEntry(NodeParseInput)
	g.AddEdge(NodeParseInput, NodeLoadContext)
	g.AddEdge(NodeLoadContext, NodeRouteInput)
	g.AddConditionalEdge(NodeRouteInput, Route)
	g.AddEdge(NodeExecuteCommand, NodeSendResponse)
	g.AddEdge(NodeBuildPrompt, NodeExecuteAI)
	g.AddConditionalEdge(NodeExecuteAI, routeAfterExecution)
	g.AddConditionalEdge(NodeExecuteSwarm, routeAfterExecution)
	g.AddEdge(NodeErrorHandler, NodeSendResponse)
	g.AddEdge(NodeSendResponse, graph.End)

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("conversation graph: %w", err)
	}
	return compiled, nil
}

// routeAfterExecution sends failed AI and swarm runs through the error
// handler so the user always gets the formatted error message.
func routeAfterExecution(s state.ConversationState) string {
	if s.Error != "" {
		return NodeErrorHandler
	}
	return NodeSendResponse
}

// Mermaid renders the conversation graph topology for the debug surface.
func Mermaid() string {
	return `graph TD
    START((Start)) --> parse_input[Parse Input]
    parse_input --> load_context[Load Context]
    load_context --> route_input{Route Input}

    route_input -->|deterministic| execute_command[Execute Command]
    route_input -->|template/codebase| build_prompt[Build Prompt]
    route_input -->|ai_query| build_prompt
    route_input -->|swarm| execute_swarm[Execute Swarm]
    route_input -->|error| error_handler[Error Handler]

    execute_command --> send_response[Send Response]
    build_prompt --> execute_ai[Execute AI]
    execute_ai --> send_response
    execute_ai -->|failure| error_handler
    execute_swarm --> send_response
    execute_swarm -->|failure| error_handler
    error_handler --> send_response

    send_response --> END((End))
`
}
