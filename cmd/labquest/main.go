// Command labquest はタスクワークフローとインセンティブ管理のサーバーを起動する。
//
//	labquest [serve]            APIサーバー
//	labquest worker             バッジ判定ワーカー
//	labquest migrate [down N]   マイグレーション
//	labquest token <user-id>    開発用トークン発行
//	labquest healthcheck        コンテナのヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/labquest/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
