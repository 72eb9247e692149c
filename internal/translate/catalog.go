package translate

// japanese maps en-US message keys to their Japanese renderings.
var japanese = map[string]string{
	// parser
	"invalid tempo value":                    "無効なテンポ値です。",
	"invalid octave value":                   "無効なオクターブ値です。",
	"invalid length value":                   "無効な音長値です。",
	"invalid volume value":                   "無効なボリューム値です。",
	"invalid quantize value":                 "無効なクオンタイズ値です。",
	"invalid frame count":                    "無効なフレーム数です。",
	"invalid detune value":                   "無効なデチューン値です。",
	"invalid transpose value":                "無効なトランスポーズ値です。",
	"invalid loop count":                     "無効なループ回数です。",
	"invalid tie length":                     "無効なタイの長さです。",
	"invalid note length":                    "無効な音符の長さです。",
	"invalid tuplet length":                  "無効な連符音長です。",
	"invalid envelope id":                    "無効なエンベロープIDです。",
	"invalid pitch envelope id":              "無効なピッチエンベロープIDです。",
	"invalid sweep value":                    "無効なスイープ値です。",
	"missing tuplet close '}'":               "連符の閉じカッコ '}' が見つかりません。",
	"missing command after '@'":              "'@' の後にコマンドがありません。",
	"unknown @ command '@%c'":                "未知の @ コマンド '@%c' です。",
	"unknown @ command '@%c'; expected '%s'": "未知の @ コマンド '@%c' です。'%s' が期待されます。",
	"unmatched ']'":                          "対応する '[' がありません。",
	"unclosed '['":                           "'[' が閉じられていません。",
	"malformed envelope token '%s'":          "エンベロープの値 '%s' が不正です。",
	"envelope %d redefined":                  "エンベロープ %d が再定義されました。",

	"use upper-case 'K'; lower-case 'k' is not allowed": "大文字の 'K' を使用してください。小文字の 'k' は使用できません。",
	"upper-case '%c' is not a note; use lower-case":     "大文字の '%c' は使用できません。音符は小文字を使用してください。",

	// compiler and pipeline
	"too many pitch envelope tables":     "ピッチエンベロープテーブルが多すぎます。",
	"no playable tracks":                 "再生可能なトラックがありません。",
	"unknown channel %q":                 "未知のチャンネル %q です。",
	"truncated instruction at offset %d": "オフセット %d の命令が途中で終わっています。",
	"unknown opcode 0x%02X at offset %d": "オフセット %[2]d に未知のオペコード 0x%[1]02X があります。",

	// assembler
	"instruction not found: %s": "命令が見つかりません: %s",
	"undefined label %q":        "未定義のラベル %q です。",
	"duplicate label %q":        "ラベル %q が重複しています。",

	// disk image
	"machine code is %d bytes; capacity is %d bytes": "マシンコードが %d バイトあります。容量は %d バイトです。",
	"file name cannot be encoded":                    "ファイル名をエンコードできません。",

	// driver
	"invalid image payload":                  "画像データが不正です。",
	"image payload must be %d bytes, got %d": "画像データは %d バイトである必要があります（%d バイト）。",
}
