package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// User: endereço a acompanhar; "*" recebe todos os fatos da chain
type ClientMsg struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AllUsers é a assinatura que recebe todos os fatos.
const AllUsers = "*"
