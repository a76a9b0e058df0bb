// Package dialog implements the menu-navigation dialogue engine.
//
// This file holds the outbound message texts and listing renderers.
package dialog

import (
	"fmt"
	"strings"

	"github.com/comunidadegraca/atendebot/internal/models"
)

const (
	msgGreeting = "Olá! Seja bem-vindo(a) à Comunidade Graça! 🙏"

	msgFarewell = "Obrigado pelo contato! Que Deus te abençoe. Até logo! 🙏"

	msgUnavailable = "Opção indisponível. Digite um dos números listados ou *menu* para ver as opções."

	msgApology = "Desculpe, tivemos um problema ao processar sua mensagem. Tente novamente em instantes."

	msgMaintenance = "Nosso menu está em atualização no momento. Tente novamente em alguns minutos."

	msgContentSoon = "Informações em breve."

	footerRoot    = "\n\nDigite o número da opção desejada.\nDigite *sair* para encerrar."
	footerSubmenu = "\n\nDigite o número da opção, *voltar* para retornar ou *menu* para o início."
	footerContent = "\n\nDigite *voltar* para retornar ou *menu* para o início."

	helpRoot    = "Não entendi. 🤔 Digite o número de uma das opções do menu, ou *menu* para ver as opções novamente."
	helpSubmenu = "Não entendi. 🤔 Digite o número de uma das opções listadas, *voltar* para retornar ou *menu* para o início."
	helpContent = "Não entendi. 🤔 Digite *voltar* para retornar ao menu anterior ou *menu* para o início."
)

// renderListing formats a numbered option list by sibling order.
func renderListing(nodes []models.MenuNode) string {
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("%d. %s\n", n.Order, n.Title))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderRootMenu formats the main menu listing.
func renderRootMenu(roots []models.MenuNode) string {
	if len(roots) == 0 {
		return msgMaintenance
	}
	return "*Menu principal*\n\n" + renderListing(roots) + footerRoot
}

// renderGreeting formats the welcome message followed by the main menu.
func renderGreeting(roots []models.MenuNode) string {
	return msgGreeting + "\n\n" + renderRootMenu(roots)
}

// renderSubmenu formats a submenu listing under its parent node.
func renderSubmenu(parent models.MenuNode, children []models.MenuNode) string {
	var sb strings.Builder
	sb.WriteString("*" + parent.Title + "*\n")
	if parent.Description != "" {
		sb.WriteString(parent.Description + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString(renderListing(children))
	sb.WriteString(footerSubmenu)
	return sb.String()
}

// renderContent formats a leaf node's terminal content. Terminal action
// nodes get the farewell instead of navigation hints.
func renderContent(n models.MenuNode) string {
	if n.Kind == models.NodeKindAction && n.ActionPayload == models.ActionEndConversation {
		return msgFarewell
	}

	var sb strings.Builder
	sb.WriteString("*" + n.Title + "*\n")
	if !n.HasContent() {
		sb.WriteString("\n" + msgContentSoon)
	} else {
		if n.Description != "" {
			sb.WriteString(n.Description + "\n")
		}
		if n.Content != "" {
			sb.WriteString("\n" + n.Content)
		}
		if n.URL != "" {
			sb.WriteString("\n\n🔗 " + n.URL)
		}
	}
	sb.WriteString(footerContent)
	return sb.String()
}

// helpFor returns the context-sensitive help text for a navigation level.
func helpFor(level models.ConversationLevel) string {
	switch level {
	case models.LevelSubmenu:
		return helpSubmenu
	case models.LevelContent:
		return helpContent
	default:
		return helpRoot
	}
}
